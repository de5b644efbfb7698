// Package ratelimit keeps request traffic looking like a person scrolling.
//
// Pacer draws a randomized delay after every fetched item:
//
//   - base tier, a few seconds with jitter, for most items
//   - short break every Modulus items or when forced
//   - long break every LongModulus items
//
// TokenBucket is a hard request budget the platform client waits on before
// every HTTP call, independent of the pacer.
package ratelimit
