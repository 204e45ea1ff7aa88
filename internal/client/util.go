package client

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// maskURL - 로그용, webhook URL의 path / query(secret 포함) 숨김
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host + "/***"
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// truncate - n바이트 이하로 자르되 UTF-8 문자 중간에서는 자르지 않음
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
