package commontools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetTime returns the current time, optionally in a named IANA timezone.
func GetTime(ctx context.Context, args map[string]interface{}) (string, error) {
	loc := time.Local
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	now := time.Now().In(loc)
	out, err := json.Marshal(map[string]string{
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
