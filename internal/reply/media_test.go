package reply

import (
	"reflect"
	"testing"
)

func TestSplit_ExtractsHTTPURL(t *testing.T) {
	prose, urls := Split("check this out https://example.com/cat.jpg nice right")
	if prose != "check this out nice right" {
		t.Errorf("prose = %q", prose)
	}
	if !reflect.DeepEqual(urls, []string{"https://example.com/cat.jpg"}) {
		t.Errorf("urls = %v", urls)
	}
}

func TestSplit_ExtractsAbsoluteMediaPath(t *testing.T) {
	prose, urls := Split("here /tmp/out/report.pdf done")
	if prose != "here done" {
		t.Errorf("prose = %q", prose)
	}
	if !reflect.DeepEqual(urls, []string{"/tmp/out/report.pdf"}) {
		t.Errorf("urls = %v", urls)
	}
}

func TestSplit_IgnoresNonMediaExtension(t *testing.T) {
	prose, urls := Split("see /etc/hosts.conf for details")
	if len(urls) != 0 {
		t.Errorf("urls = %v, want none", urls)
	}
	if prose != "see /etc/hosts.conf for details" {
		t.Errorf("prose = %q", prose)
	}
}

func TestSplit_NoMediaLeavesProseUnchanged(t *testing.T) {
	prose, urls := Split("just a plain reply")
	if len(urls) != 0 {
		t.Errorf("urls = %v, want none", urls)
	}
	if prose != "just a plain reply" {
		t.Errorf("prose = %q", prose)
	}
}

func TestSplit_MultipleReferencesPreserveOrder(t *testing.T) {
	_, urls := Split("first /a/one.png then https://host/two.mp4 then /b/three.wav")
	want := []string{"/a/one.png", "https://host/two.mp4", "/b/three.wav"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("urls = %v, want %v", urls, want)
	}
}
