package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	models "storefront/model"
)

// ParsePaymentForm extracts a RedirectForm from server-rendered form
// markup. Only the <form> action/method and <input name value> pairs are
// read; every other element, script or attribute is dropped, so the
// markup itself is never rendered. defaultAction is used when the markup
// carries no <form> element.
func ParsePaymentForm(markup, defaultAction string) (*models.RedirectForm, error) {
	form := &models.RedirectForm{
		Action: defaultAction,
		Method: http.MethodPost,
		Fields: map[string]string{},
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse payment form: %w", err)
			}
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		switch tok.Data {
		case "form":
			if action := attr(tok, "action"); action != "" {
				form.Action = action
			}
			if method := attr(tok, "method"); method != "" {
				form.Method = strings.ToUpper(method)
			}
		case "input":
			name := attr(tok, "name")
			if name == "" {
				continue
			}
			form.Fields[name] = attr(tok, "value")
		}
	}

	if len(form.Fields) == 0 {
		return nil, fmt.Errorf("payment form has no fields")
	}
	if err := validateAction(form.Action); err != nil {
		return nil, err
	}
	return form, nil
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// validateAction accepts only absolute http(s) gateway URLs.
func validateAction(action string) error {
	if action == "" {
		return fmt.Errorf("payment form has no action")
	}
	u, err := url.Parse(action)
	if err != nil {
		return fmt.Errorf("payment form action: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("payment form action scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("payment form action has no host")
	}
	return nil
}
