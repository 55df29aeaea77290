package vosk

import "testing"

func TestParseResult(t *testing.T) {
	raw := `{
  "result" : [{"conf" : 1.0, "end" : 0.6, "start" : 0.2, "word" : "good"},
              {"conf" : 0.5, "end" : 1.1, "start" : 0.6, "word" : "bye"}],
  "text" : "good bye"
}`
	res, err := parseResult(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "good bye" || len(res.Segments) != 2 {
		t.Fatalf("got %+v", res)
	}
	if res.Confidence != 0.75 {
		t.Fatalf("confidence = %v, want 0.75", res.Confidence)
	}
	if res.Segments[1].Text != "bye" || res.Segments[1].StartSec != 0.6 {
		t.Fatalf("segment = %+v", res.Segments[1])
	}
}

func TestParseResultBadJSON(t *testing.T) {
	if _, err := parseResult("{"); err == nil {
		t.Fatal("expected error")
	}
}
