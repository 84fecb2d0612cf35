package testutil

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestWaitFor(t *testing.T) {
	var n atomic.Int32
	go func() {
		for range 5 {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}
	}()
	WaitFor(t, 5*time.Second, func() bool { return n.Load() == 5 }, "counter")
}

func TestNewFormRequest(t *testing.T) {
	r := NewFormRequest("/debug/camera-set", "name=intg_time&value=40")
	if r.Method != http.MethodPost {
		t.Fatalf("method = %s", r.Method)
	}
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if got := r.PostForm.Get("value"); got != "40" {
		t.Errorf("value = %q, want 40", got)
	}
}
