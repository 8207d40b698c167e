package bot

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	tele "gopkg.in/telebot.v3"

	"dhbvn-alerts/internal/cache"
	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/district"
	"dhbvn-alerts/internal/messaging"
	"dhbvn-alerts/internal/models"
)

const (
	// commandRateLimit is max commands per sender per rate window.
	commandRateLimit = 10
	rateWindow       = time.Minute

	districtCallbackPrefix = "district_"
	statusFetchTimeout     = 20 * time.Second
	callbackDedupeTTL      = time.Hour
)

var htmlOpts = &tele.SendOptions{ParseMode: tele.ModeHTML}

// Bot wraps the Telegram bot handling subscription commands.
type Bot struct {
	bot     *tele.Bot
	db      *database.DB
	cache   *cache.Cache
	scraper *dhbvn.Client
}

func New(token string, db *database.DB, c *cache.Cache, scraper *dhbvn.Client) (*Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	bot := &Bot{bot: b, db: db, cache: c, scraper: scraper}

	b.Handle("/start", bot.handleStart)
	b.Handle("/status", bot.handleStatus)
	b.Handle("/change", bot.handleChange)
	b.Handle("/stop", bot.handleStop)
	b.Handle("/help", bot.handleHelp)
	b.Handle(tele.OnText, bot.handleText)
	b.Handle(tele.OnCallback, bot.handleCallback)

	return bot, nil
}

// TeleBot exposes the underlying bot for the alert delivery consumer.
func (b *Bot) TeleBot() *tele.Bot {
	return b.bot
}

func (b *Bot) Start() {
	log.Println("[bot] starting long polling")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

// allow applies the shared per-sender rate limit. Redis failures fail open:
// a degraded limiter should not take the bot down with it.
func (b *Bot) allow(c tele.Context) bool {
	chatID := strconv.FormatInt(c.Chat().ID, 10)
	ok, err := b.cache.AllowCommand(context.Background(), chatID, commandRateLimit, rateWindow)
	if err != nil {
		log.Printf("[bot] rate limit check failed for %s: %v", chatID, err)
		return true
	}
	if !ok {
		_ = c.Send(messaging.RateLimitMessage, htmlOpts)
	}
	return ok
}

func (b *Bot) handleStart(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	return c.Send(messaging.WelcomeMessage, htmlOpts, districtKeyboard())
}

func (b *Bot) handleStatus(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	sub, err := b.subscription(c)
	if err != nil {
		return c.Send(messaging.NotSubscribedMessage, htmlOpts)
	}

	outages, err := b.currentOutages(sub.DistrictID)
	if err != nil {
		log.Printf("[bot] status fetch failed for district %d: %v", sub.DistrictID, err)
		return c.Send(messaging.ErrorMessage, htmlOpts)
	}
	return c.Send(messaging.StatusMessage(sub.DistrictName, outages), htmlOpts)
}

func (b *Bot) handleChange(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	if _, err := b.subscription(c); err != nil {
		return c.Send(messaging.NotSubscribedMessage, htmlOpts)
	}
	return c.Send(messaging.ChangeDistrictMessage, htmlOpts, districtKeyboard())
}

func (b *Bot) handleStop(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	chatID := strconv.FormatInt(c.Chat().ID, 10)
	ok, err := b.db.Unsubscribe(context.Background(), models.PlatformTelegram, chatID)
	if err != nil {
		log.Printf("[bot] unsubscribe failed for %s: %v", chatID, err)
		return c.Send(messaging.ErrorMessage, htmlOpts)
	}
	if !ok {
		return c.Send(messaging.NotSubscribedMessage, htmlOpts)
	}
	return c.Send(messaging.UnsubscribeMessage, htmlOpts)
}

func (b *Bot) handleHelp(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	return c.Send(messaging.HelpMessage, htmlOpts)
}

func (b *Bot) handleText(c tele.Context) error {
	if !b.allow(c) {
		return nil
	}
	return c.Send(messaging.InvalidCommandMessage, htmlOpts)
}

// handleCallback processes district selection buttons. Telegram retries
// callback deliveries, so each callback ID is claimed in Redis first and
// duplicates are acknowledged without re-subscribing.
func (b *Bot) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}

	first, err := b.cache.MarkUpdateProcessed(context.Background(), cb.ID, callbackDedupeTTL)
	if err != nil {
		log.Printf("[bot] callback dedupe check failed: %v", err)
	} else if !first {
		return c.Respond()
	}

	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	if !strings.HasPrefix(data, districtCallbackPrefix) {
		return c.Respond()
	}
	districtID, err := strconv.Atoi(strings.TrimPrefix(data, districtCallbackPrefix))
	if err != nil || !district.Valid(districtID) {
		return c.Respond()
	}

	chatID := strconv.FormatInt(c.Chat().ID, 10)
	username := c.Sender().Username

	sub, err := b.db.UpsertSubscription(context.Background(), models.PlatformTelegram, chatID, username, districtID)
	if err != nil {
		log.Printf("[bot] subscribe failed for %s: %v", chatID, err)
		_ = c.Respond()
		return c.Send(messaging.ErrorMessage, htmlOpts)
	}
	_ = c.Respond(&tele.CallbackResponse{Text: "Subscribed to " + sub.DistrictName})

	outages, err := b.currentOutages(districtID)
	if err != nil {
		log.Printf("[bot] confirmation fetch failed for district %d: %v", districtID, err)
		outages = nil
	}
	return c.Send(messaging.ConfirmationMessage(sub.DistrictName, outages), htmlOpts)
}

func (b *Bot) subscription(c tele.Context) (*models.Subscription, error) {
	chatID := strconv.FormatInt(c.Chat().ID, 10)
	sub, err := b.db.GetSubscription(context.Background(), models.PlatformTelegram, chatID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("[bot] load subscription failed for %s: %v", chatID, err)
		}
		return nil, err
	}
	if !sub.IsActive {
		return nil, pgx.ErrNoRows
	}
	return sub, nil
}

func (b *Bot) currentOutages(districtID int) ([]models.OutageRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusFetchTimeout)
	defer cancel()
	return b.scraper.FetchOutages(ctx, districtID)
}

// districtKeyboard builds the inline district selector, two buttons per row.
func districtKeyboard() *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	for i := 0; i < len(district.All); i += 2 {
		row := []tele.InlineButton{{
			Text: district.All[i].Name,
			Data: districtCallbackPrefix + strconv.Itoa(district.All[i].ID),
		}}
		if i+1 < len(district.All) {
			row = append(row, tele.InlineButton{
				Text: district.All[i+1].Name,
				Data: districtCallbackPrefix + strconv.Itoa(district.All[i+1].ID),
			})
		}
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
