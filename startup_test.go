package main

import "testing"

func TestParseStartupPattern(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{}, ""},
		{[]string{"serenity://box"}, "box"},
		{[]string{"--flag", "serenity://relaxation"}, "relaxation"},
		{[]string{"serenity://Deep-Sleep/"}, "deep-sleep"}, // trailing slash stripped
		{[]string{"serenity://"}, ""},                     // empty id
		{[]string{"notserenity://box"}, ""},               // wrong scheme
		{[]string{"someflag", "otherarg"}, ""},
	}
	for _, c := range cases {
		got := parseStartupPattern(c.args)
		if got != c.want {
			t.Errorf("parseStartupPattern(%v) = %q, want %q", c.args, got, c.want)
		}
	}
}
