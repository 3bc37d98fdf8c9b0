// Package rate implements Redis fixed-window counters that throttle login
// attempts (per identity and per IP) and silent rotation attempts.
package rate
