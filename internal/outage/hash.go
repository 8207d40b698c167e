package outage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"dhbvn-alerts/internal/models"
)

// Hash derives the stable identity of an outage record. The portal assigns
// no IDs of its own, so identity is a digest over the fields that should not
// change across polls for the same physical event: area, feeder and start
// time. Reason and restoration time are excluded because the utility edits
// them on existing outages.
//
// Known risk: a later, unrelated outage that coincidentally repeats the same
// area, feeder and start time is indistinguishable from the original event.
func Hash(rec models.OutageRecord) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s", rec.Area, rec.Feeder, rec.StartTime)))
	return hex.EncodeToString(sum[:])
}
