package models

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"0", 0},
		{"12", 1200},
		{"12.5", 1250},
		{"12.50", 1250},
		{"-3.05", -305},
		{".75", 75},
		{"1.005", 101},
		{"1.004", 100},
		{"1e2", 10000},
	}
	for _, c := range cases {
		got, err := ParseMoney(c.in)
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseMoney(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	if _, err := ParseMoney("abc"); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
	if _, err := ParseMoney(""); err == nil {
		t.Fatalf("expected error for empty amount")
	}
}

func TestParseMoneyRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"1.-5",
		"1.+5",
		"--1",
		"1.2.3",
		"1 000",
		".",
		"-",
		"12.5x",
		"99999999999999999999",
		"92233720368547758.07",
		"1e300",
		"-1e300",
	} {
		if got, err := ParseMoney(in); err == nil {
			t.Fatalf("ParseMoney(%q) = %d, want error", in, got)
		}
	}
}

func TestMoneyJSONAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 150.5, "b": "99.99", "c": null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 15050 || v.B != 9999 || v.C != 0 {
		t.Fatalf("unexpected amounts: %+v", v)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":150.50,"b":99.99,"c":0.00}` {
		t.Fatalf("unexpected encoding: %s", out)
	}
}
