package market

import (
	"fmt"
	"strings"
	"time"
)

// TimeframeDuration maps "M1".."MN1" to a duration.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(tf)) {
	case "M1":
		return time.Minute, nil
	case "M5":
		return 5 * time.Minute, nil
	case "M15":
		return 15 * time.Minute, nil
	case "M30":
		return 30 * time.Minute, nil
	case "H1":
		return time.Hour, nil
	case "H4":
		return 4 * time.Hour, nil
	case "D1":
		return 24 * time.Hour, nil
	case "W1":
		return 7 * 24 * time.Hour, nil
	case "MN1":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe string: %s", tf)
	}
}

// DurationTimeframe is the inverse of TimeframeDuration.
func DurationTimeframe(d time.Duration) (string, error) {
	sec := int64(d / time.Second)
	if sec <= 0 {
		return "", fmt.Errorf("invalid timeframe seconds: %d", sec)
	}
	if sec < 3600 && sec%60 == 0 {
		return fmt.Sprintf("M%d", sec/60), nil
	}
	if sec < 86400 && sec%3600 == 0 {
		return fmt.Sprintf("H%d", sec/3600), nil
	}
	if sec%86400 == 0 {
		switch days := sec / 86400; days {
		case 7:
			return "W1", nil
		case 30:
			return "MN1", nil
		default:
			return fmt.Sprintf("D%d", days), nil
		}
	}
	return "", fmt.Errorf("cannot map timeframe: %d seconds", sec)
}
