package factory

import (
	"testing"

	"github.com/hermod-gw/hermod/internal/deliverylog/opensearch"
	"github.com/hermod-gw/hermod/internal/deliverylog/sqlite"
)

func TestSQLiteDSN(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	if _, ok := sink.(*sqlite.Sink); !ok {
		t.Errorf("Expected *sqlite.Sink, got %T", sink)
	}
}

func TestBarePathDefaultsToSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN(t.TempDir() + "/log.db")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	if _, ok := sink.(*sqlite.Sink); !ok {
		t.Errorf("Expected *sqlite.Sink, got %T", sink)
	}
}

func TestOpenSearchDSN(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://localhost:9200/audit")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	if _, ok := sink.(*opensearch.Sink); !ok {
		t.Errorf("Expected *opensearch.Sink, got %T", sink)
	}
}

func TestElasticsearchAlias(t *testing.T) {
	sink, err := NewSinkFromDSN("elasticsearch://localhost:9200")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	if _, ok := sink.(*opensearch.Sink); !ok {
		t.Errorf("Expected *opensearch.Sink, got %T", sink)
	}
}

func TestEmptyDSN(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Error("Expected error for empty DSN")
	}
}

func TestUnsupportedScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("redis://localhost:6379"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}
