package fundkrawler

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
)

func TestRedisStoreWriteAndRead(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	store := NewRedisStore("test", &redis.Options{Addr: server.Addr()})
	defer store.Close()

	records, _ := ParseThemeRecords([]byte(themeFixture))
	replacement := records[:1]
	for _, snapshot := range [][]*ThemeRecord{records, replacement} {
		if err = store.Write(context.Background(), "2021/02/20/week/theme.json", snapshot); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err = store.Write(context.Background(), "2021/02/20/month/theme.json", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Read("2021/02/20/week/theme.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, replacement) {
		t.Errorf("expected the replacement snapshot, got %+v", got)
	}

	if !server.Exists("{fundkrawler:test}:snapshot:2021/02/20/week/theme.json") {
		t.Errorf("snapshot key not found")
	}
	paths, err := store.Paths()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 indexed paths, got %v", paths)
	}
}
