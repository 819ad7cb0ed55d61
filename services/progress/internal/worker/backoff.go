package worker

import "time"

func backoffDelay(numDelivered uint64) time.Duration {
	// 1st failure -> 1s, 2nd -> 2s, 3rd -> 4s ... capped at a minute
	attempt := int(numDelivered)
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		return 60 * time.Second
	}
	sec := 1 << (attempt - 1)
	if sec > 60 {
		sec = 60
	}
	return time.Duration(sec) * time.Second
}
