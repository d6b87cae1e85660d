package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func TestAcquireLiveSession_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxLiveSessions: 1})
	now := time.Now()

	first := l.AcquireLiveSession("p1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireLiveSession("p1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}
	if other := l.AcquireLiveSession("p2", now); !other.Allowed {
		t.Fatalf("other principal should be allowed")
	}

	first.Permit.Release()
	first.Permit.Release()
	third := l.AcquireLiveSession("p1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
	if fourth := l.AcquireLiveSession("p1", now); fourth.Allowed {
		t.Fatalf("double release must not free two slots")
	}
}

func TestAcquireRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if d := l.AcquireRequest("p", now); !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	d := l.AcquireRequest("p", now)
	if d.Allowed || d.RetryAfter != 1 {
		t.Fatalf("third request: allowed=%v retry_after=%d", d.Allowed, d.RetryAfter)
	}
	if d := l.AcquireRequest("p", now.Add(time.Second)); !d.Allowed {
		t.Fatalf("token should refill after 1s")
	}
}

func TestAcquireRequest_Concurrency(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()
	a := l.AcquireRequest("p", now)
	if !a.Allowed {
		t.Fatalf("first denied")
	}
	if b := l.AcquireRequest("p", now); b.Allowed {
		t.Fatalf("second should be denied while first holds the slot")
	}
	a.Permit.Release()
	if c := l.AcquireRequest("p", now); !c.Allowed {
		t.Fatalf("slot should be free after release")
	}
}

func TestLimiter_BoundsEntries(t *testing.T) {
	l := New(Config{MaxEntries: 2, EntryTTL: time.Minute})
	now := time.Now()
	l.AcquireRequest("a", now)
	l.AcquireRequest("b", now)
	l.AcquireRequest("c", now.Add(2*time.Minute))
	if n := l.Len(); n > 2 {
		t.Fatalf("entries=%d, want <= 2", n)
	}
}

func TestPrincipalKey(t *testing.T) {
	k := PrincipalKey("user", "user-a_gmail_com")
	if !strings.HasPrefix(k, "user_") || strings.Contains(k, "gmail") {
		t.Fatalf("key=%q", k)
	}
	if k != PrincipalKey("user", "user-a_gmail_com") {
		t.Fatalf("key must be stable")
	}
	if k == PrincipalKey("ip", "user-a_gmail_com") {
		t.Fatalf("kind must be part of the key")
	}
}
