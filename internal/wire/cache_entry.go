// Package wire implements the cache-entry string codec shared by every
// Cache backend: a 3-field, newline-delimited encoding of a fetched
// config's timestamp, etag and raw JSON body.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize produces the "{millis}\n{etag}\n{json}" cache value. millis is
// the fetch time as Unix milliseconds.
func Serialize(millis int64, etag string, configJSON []byte) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(millis, 10))
	b.WriteByte('\n')
	b.WriteString(etag)
	b.WriteByte('\n')
	b.Write(configJSON)
	return b.String()
}

// Deserialize splits a cache value produced by Serialize back into its
// three fields. The error messages match the format every official SDK
// uses so diagnostics stay consistent across a multi-language deployment.
func Deserialize(s string) (millis int64, etag string, configJSON []byte, err error) {
	firstNL := strings.IndexByte(s, '\n')
	if firstNL < 0 {
		return 0, "", nil, fmt.Errorf("number of values is fewer than expected")
	}
	rest := s[firstNL+1:]
	secondNL := strings.IndexByte(rest, '\n')
	if secondNL < 0 {
		return 0, "", nil, fmt.Errorf("number of values is fewer than expected")
	}

	millisStr := s[:firstNL]
	etag = rest[:secondNL]
	body := rest[secondNL+1:]

	parsedMillis, convErr := strconv.ParseInt(millisStr, 10, 64)
	if convErr != nil {
		return 0, "", nil, fmt.Errorf("invalid fetch time: '%s'", millisStr)
	}
	if parsedMillis < 0 {
		return 0, "", nil, fmt.Errorf("invalid unix seconds value: '%d'", parsedMillis)
	}

	return parsedMillis, etag, []byte(body), nil
}
