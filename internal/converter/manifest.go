package converter

import "strings"

// CountSegments returns the number of media segments an HLS playlist lists.
// A conversion is considered playable once this is non-zero.
func CountSegments(m3u8 string) int {
	n := 0
	for _, line := range strings.Split(m3u8, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#EXTINF:") {
			n++
		}
	}
	return n
}

// HasEndList reports whether the playlist is finalized with #EXT-X-ENDLIST.
// Live conversions never set it; its presence means ffmpeg stopped.
func HasEndList(m3u8 string) bool {
	for _, line := range strings.Split(m3u8, "\n") {
		if strings.TrimSpace(line) == "#EXT-X-ENDLIST" {
			return true
		}
	}
	return false
}
