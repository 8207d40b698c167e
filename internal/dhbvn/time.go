package dhbvn

import "time"

// portalTimeLayout matches the portal's "16-Apr-2025 10:24:00" convention.
const portalTimeLayout = "2-Jan-2006 15:04:05"

// IST is the fixed offset the portal reports all times in.
var IST = time.FixedZone("IST", 5*3600+30*60)

// ParseISTTime parses a portal display time as Indian Standard Time.
func ParseISTTime(s string) (time.Time, error) {
	return time.ParseInLocation(portalTimeLayout, s, IST)
}
