package service

import (
	"strconv"

	"github.com/mssola/useragent"

	"blaze/internal/telemetry/models"
)

// Properties added from the request User-Agent.
const (
	PropBrowser = "ua_browser"
	PropOS      = "ua_os"
	PropMobile  = "ua_mobile"
	PropBot     = "ua_bot"
)

// userAgentProperties parses a User-Agent header into event properties.
// An empty header yields nothing.
func userAgentProperties(header string) models.Properties {
	if header == "" {
		return nil
	}
	ua := useragent.New(header)
	browser, version := ua.Browser()
	props := models.Properties{
		PropMobile: models.Bool(ua.Mobile()),
		PropBot:    models.Bool(ua.Bot()),
	}
	if browser != "" {
		if major := majorVersion(version); major != "" {
			browser += " " + major
		}
		props[PropBrowser] = models.String(browser)
	}
	if os := ua.OS(); os != "" {
		props[PropOS] = models.String(os)
	}
	return props
}

// enrich copies ua into each event's properties without overriding values the
// client sent itself. Events are copied, never mutated in place.
func enrich(events []models.Event, ua models.Properties) []models.Event {
	if len(ua) == 0 {
		return events
	}
	out := make([]models.Event, len(events))
	for i, e := range events {
		props := make(models.Properties, len(e.Properties)+len(ua))
		for k, v := range ua {
			props[k] = v
		}
		for k, v := range e.Properties {
			props[k] = v
		}
		e.Properties = props
		out[i] = e
	}
	return out
}

func majorVersion(v string) string {
	for i, r := range v {
		if r == '.' {
			v = v[:i]
			break
		}
	}
	if _, err := strconv.Atoi(v); err != nil {
		return ""
	}
	return v
}
