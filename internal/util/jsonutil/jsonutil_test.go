package jsonutil

import (
	"testing"
)

func TestMarshalNoEscapeKeepsMarkup(t *testing.T) {
	got, err := MarshalNoEscape(map[string]string{"b": "<b>&</b>", "a": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":"x","b":"<b>&</b>"}` {
		t.Fatalf("got %s", got)
	}
}

func TestUnmarshalFlexUnwrapsQuotedJSON(t *testing.T) {
	var out struct {
		Theme string `json:"executiveTheme"`
	}
	if err := UnmarshalFlex([]byte(`"{\"executiveTheme\":\"Risk \\\\u003e cost\"}"`), &out); err != nil {
		t.Fatal(err)
	}
	if out.Theme != "Risk > cost" {
		t.Fatalf("theme = %q", out.Theme)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	type msg struct {
		ID string `json:"id"`
	}
	var c Codec
	b, err := c.Marshal(msg{ID: "bp-1"})
	if err != nil {
		t.Fatal(err)
	}
	var out msg
	if err := c.Unmarshal(b, &out); err != nil || out.ID != "bp-1" {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if c.Name() != "json" {
		t.Fatalf("name = %s", c.Name())
	}
}
