package webdavfs

import (
	"net/http"
	"strings"
	"testing"
)

func challengeResponse(header string) *http.Response {
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Header:     http.Header{},
	}
	resp.Header.Set("WWW-Authenticate", header)
	return resp
}

func authParams(t *testing.T, req *http.Request) map[string]string {
	t.Helper()

	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		t.Fatalf("expected a Digest Authorization header, got '%s'", header)
	}
	return parseChallenge(header[len("Digest "):])
}

// The reference vector from RFC 2617 §3.5 (fixed cnonce and nc).
func TestDigestRFC2617Vector(t *testing.T) {
	ha1 := h("Mufasa:testrealm@host.com:Circle Of Life")
	ha2 := h("GET:/dir/index.html")
	response := h(ha1 + ":dcd98b7102dd2f0e8b11d0f600bfb0c093:00000001:0a4f113b:auth:" + ha2)

	if e, g := "6629fae49393a05397450978507c4ef1", response; e != g {
		t.Errorf("digest response: expected '%s', got '%s'", e, g)
	}
}

func TestDigestChallengeSeedsState(t *testing.T) {
	auth := newDigestAuth("Mufasa", "Circle Of Life")

	retry := auth.handleChallenge(challengeResponse(
		`Digest realm="testrealm@host.com", qop="auth,auth-int", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41"`,
	))
	if !retry {
		t.Fatalf("a Digest challenge should trigger a retry")
	}

	req, err := http.NewRequest(http.MethodGet, "http://host/dir/index.html", nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := auth.apply(req); err != nil {
		t.Fatalf("%+v", err)
	}

	params := authParams(t, req)

	if e, g := "testrealm@host.com", params["realm"]; e != g {
		t.Errorf("realm: expected '%s', got '%s'", e, g)
	}
	if e, g := "auth", params["qop"]; e != g {
		t.Errorf("qop: expected '%s' (preferred over auth-int), got '%s'", e, g)
	}
	if e, g := "00000001", params["nc"]; e != g {
		t.Errorf("nc: expected '%s', got '%s'", e, g)
	}
	if e, g := "5ccc069c403ebaf9f0171e9517f40e41", params["opaque"]; e != g {
		t.Errorf("opaque: expected '%s', got '%s'", e, g)
	}
	if params["response"] == "" {
		t.Errorf("response should be computed")
	}

	// Verify the response against a manual computation using the
	// request's cnonce.
	ha1 := h("Mufasa:testrealm@host.com:Circle Of Life")
	ha2 := h("GET:/dir/index.html")
	expected := h(ha1 + ":dcd98b7102dd2f0e8b11d0f600bfb0c093:00000001:" + params["cnonce"] + ":auth:" + ha2)
	if e, g := expected, params["response"]; e != g {
		t.Errorf("response: expected '%s', got '%s'", e, g)
	}
}

func TestDigestNonceCountIncrements(t *testing.T) {
	auth := newDigestAuth("user", "secret")
	auth.handleChallenge(challengeResponse(
		`Digest realm="r", qop="auth", nonce="abc"`,
	))

	for i, expected := range []string{"00000001", "00000002", "00000003"} {
		req, err := http.NewRequest(http.MethodGet, "http://host/f", nil)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if err := auth.apply(req); err != nil {
			t.Fatalf("%+v", err)
		}
		params := authParams(t, req)
		if e, g := expected, params["nc"]; e != g {
			t.Errorf("request %d nc: expected '%s', got '%s'", i+1, e, g)
		}
	}
}

func TestDigestMD5SessUsesSessionKey(t *testing.T) {
	auth := newDigestAuth("user", "secret")
	auth.handleChallenge(challengeResponse(
		`Digest realm="r", qop="auth", nonce="abc", algorithm=MD5-sess`,
	))

	req, err := http.NewRequest(http.MethodGet, "http://host/f", nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := auth.apply(req); err != nil {
		t.Fatalf("%+v", err)
	}

	params := authParams(t, req)

	sessionKey := h(h("user:r:secret") + ":abc:" + params["cnonce"])
	ha2 := h("GET:/f")
	expected := h(sessionKey + ":abc:00000001:" + params["cnonce"] + ":auth:" + ha2)
	if e, g := expected, params["response"]; e != g {
		t.Errorf("MD5-sess response: expected '%s', got '%s'", e, g)
	}
}

func TestDigestWithoutChallengeSendsNothing(t *testing.T) {
	auth := newDigestAuth("user", "secret")

	req, err := http.NewRequest(http.MethodGet, "http://host/f", nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := auth.apply(req); err != nil {
		t.Fatalf("%+v", err)
	}
	if header := req.Header.Get("Authorization"); header != "" {
		t.Errorf("no Authorization header expected before the first challenge, got '%s'", header)
	}
}
