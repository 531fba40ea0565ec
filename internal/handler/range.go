package handler

import (
	"errors"
	"strconv"
	"strings"
)

var errUnsatisfiableRange = errors.New("unsatisfiable range")

// byteRange is an inclusive span of a resource of known size.
type byteRange struct {
	start   int64
	end     int64
	partial bool
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange interprets a single "bytes=" range against size. An empty header
// selects the whole resource. The end is clamped to the last byte; a suffix
// range ("bytes=-N") selects the final N bytes. Multiple ranges are rejected.
func parseRange(header string, size int64) (byteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return byteRange{start: 0, end: size - 1}, nil
	}
	ranges, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(ranges, ",") || size <= 0 {
		return byteRange{}, errUnsatisfiableRange
	}
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok {
		return byteRange{}, errUnsatisfiableRange
	}
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)

	if startRaw == "" {
		n, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, errUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1, partial: true}, nil
	}

	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 || start >= size {
		return byteRange{}, errUnsatisfiableRange
	}
	end := size - 1
	if endRaw != "" {
		end, err = strconv.ParseInt(endRaw, 10, 64)
		if err != nil || end < start {
			return byteRange{}, errUnsatisfiableRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return byteRange{start: start, end: end, partial: true}, nil
}
