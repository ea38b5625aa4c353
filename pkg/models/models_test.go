package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestEngineString(t *testing.T) {
	tests := []struct {
		engine   Engine
		expected string
	}{
		{EngineYtdlp, "ytdlp"},
		{EngineGalleryDl, "gallery_dl"},
		{EngineYtdlpGalleryDlFlbk, "ytdlp_with_gallery_dl_fallback"},
	}

	for _, test := range tests {
		result := string(test.engine)
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestMediaTypeString(t *testing.T) {
	tests := []struct {
		mediaType MediaType
		expected  string
	}{
		{MediaTypeVideo, "video"},
		{MediaTypeAudio, "audio"},
		{MediaTypeImage, "image"},
		{MediaTypePlaylist, "playlist"},
		{MediaTypeLive, "live"},
	}

	for _, test := range tests {
		result := string(test.mediaType)
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestAsRetryAfter(t *testing.T) {
	err := fmt.Errorf("send: %w", &RetryAfterError{RetryAfter: 5 * time.Second})
	backoff, ok := AsRetryAfter(err)
	if !ok {
		t.Fatal("Expected wrapped RetryAfterError to be detected")
	}
	if backoff != 5*time.Second {
		t.Errorf("Expected 5s backoff, got %s", backoff)
	}

	if _, ok := AsRetryAfter(errors.New("plain error")); ok {
		t.Error("Expected plain error to not carry a backoff")
	}
}

func TestIsChatGone(t *testing.T) {
	err := fmt.Errorf("deliver: %w", &ChatGoneError{ChatID: 42})
	if !IsChatGone(err) {
		t.Error("Expected wrapped ChatGoneError to be detected")
	}
	if IsChatGone(errors.New("plain error")) {
		t.Error("Expected plain error to not read as chat gone")
	}
}

func TestRateLimitedErrorMessage(t *testing.T) {
	err := &RateLimitedError{Period: PeriodHour, RetryAfter: 30 * time.Minute}
	msg := err.Error()
	if msg == "" {
		t.Fatal("Expected non-empty message")
	}
	if !strings.Contains(msg, "hour") {
		t.Errorf("Expected message to name the period, got %q", msg)
	}
}
