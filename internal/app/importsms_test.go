package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestImportSMS(t *testing.T) {
	inbox := `[
		{".id":"*1","message":"Dati: hai ancora a disposizione il 73% di 100,0 GIGA","timestamp":"2024-08-17T15:27:02Z","from":"4155"},
		{".id":"*2","message":"Dati: hai ancora a disposizione il 70% di 100,0 GIGA","timestamp":"2024-08-18T15:27:02Z","from":"4155"},
		{".id":"*3","message":"Benvenuto in WindTre","timestamp":"2024-08-18T16:00:00Z"},
		{".id":"*4","message":"Dati: hai ancora a disposizione il 69% di 100,0 GIGA"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(inbox))
	}))
	t.Cleanup(srv.Close)

	a := newTestApp(t)
	a.Config.Mikrotik.BaseURL = srv.URL
	a.Config.Mikrotik.Username = "admin"
	a.Config.Mikrotik.Password = "hunter2"

	ctx := context.Background()
	if err := a.ImportSMS(ctx); err != nil {
		t.Fatalf("import: %v", err)
	}

	store := openAppStore(t, a)
	count, err := store.CountDataStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	// Two decodable entries; the junk body and the undated one are skipped.
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	// Re-importing the same inbox is a no-op on the unique date_time.
	if err := a.ImportSMS(ctx); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	count, err = store.CountDataStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count after re-import = %d, want 2", count)
	}
}

func TestImportSMSRequiresRouterConfig(t *testing.T) {
	a := newTestApp(t)
	if err := a.ImportSMS(context.Background()); err == nil {
		t.Fatal("expected an error without router configuration")
	}
}
