package control

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
)

func TestPressFromCallback(t *testing.T) {
	cb := &telego.CallbackQuery{
		ID:      "cb1",
		From:    telego.User{ID: 777},
		Data:    "approve:42",
		Message: &telego.Message{MessageID: 5, Chat: telego.Chat{ID: 900}},
	}

	press, ok := pressFromCallback(cb)
	if !ok {
		t.Fatal("pressFromCallback rejected a complete callback")
	}
	if press.CallbackID != "cb1" || press.Data != "approve:42" {
		t.Errorf("press = %+v", press)
	}
	if press.ChatID != 900 || press.MessageID != 5 || press.FromID != 777 {
		t.Errorf("location = %+v", press)
	}
}

func TestPressFromCallback_Incomplete(t *testing.T) {
	tests := []struct {
		name string
		cb   *telego.CallbackQuery
	}{
		{"no data", &telego.CallbackQuery{ID: "x", Message: &telego.Message{}}},
		{"no message", &telego.CallbackQuery{ID: "x", Data: "approve:1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := pressFromCallback(tt.cb); ok {
				t.Error("incomplete callback accepted")
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	limited := fmt.Errorf("send: %w", &telegoapi.Error{ErrorCode: 429, Description: "Too Many Requests"})
	if !IsRateLimited(limited) {
		t.Error("wrapped 429 not detected")
	}
	if IsRateLimited(&telegoapi.Error{ErrorCode: 400}) {
		t.Error("400 misreported as rate limit")
	}
	if IsRateLimited(errors.New("boom")) {
		t.Error("plain error misreported as rate limit")
	}
}
