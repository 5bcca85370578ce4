package events

import (
	"testing"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/listing"
)

func listingFixture() listing.Listing {
	return listing.Listing{
		ListingID: "11111111-1111-1111-1111-111111111111",
		Source:    listing.Source{Platform: "zillow"},
	}
}

func TestNewAssignsEventIDAndDefaults(t *testing.T) {
	e, err := New(TopicListingsRaw, RawListingEvent{})
	if err != nil {
		t.Fatal(err)
	}
	if e.EventID == "" {
		t.Error("expected a generated event id")
	}
	if e.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default max retries, got %d", e.MaxRetries)
	}
	if e.Status != StatusPending {
		t.Errorf("expected pending status, got %s", e.Status)
	}
}

func TestWithParentAndTrace(t *testing.T) {
	e, err := New(TopicListingsProcessed, ProcessedListingEvent{}, WithParent("parent-1"), WithTrace("trace-1", "req-1"))
	if err != nil {
		t.Fatal(err)
	}
	if e.ParentEventID != "parent-1" || e.TraceID != "trace-1" || e.RequestID != "req-1" {
		t.Errorf("options not applied: %+v", e)
	}
}

func TestNextAttemptIncrementsRetryCount(t *testing.T) {
	e, _ := New(TopicListingsRaw, RawListingEvent{})
	next := e.NextAttempt()
	if next.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", next.RetryCount)
	}
	if next.Status != StatusRetrying {
		t.Errorf("expected retrying status, got %s", next.Status)
	}
	if e.RetryCount != 0 {
		t.Error("NextAttempt must not mutate the receiver")
	}
}

func TestExhausted(t *testing.T) {
	e, _ := New(TopicListingsRaw, RawListingEvent{}, WithMaxRetries(2))
	if e.Exhausted() {
		t.Fatal("fresh envelope should not be exhausted")
	}
	e = e.NextAttempt().NextAttempt()
	if !e.Exhausted() {
		t.Fatal("expected exhaustion after reaching max retries")
	}
}

func TestToDeadLetterPreservesOriginalTopic(t *testing.T) {
	e, _ := New(TopicListingsRaw, RawListingEvent{})
	dead := e.ToDeadLetter()
	if dead.Topic != TopicDeadLetter {
		t.Errorf("expected dead letter topic, got %s", dead.Topic)
	}
	if dead.Tags["original_topic"] != string(TopicListingsRaw) {
		t.Errorf("expected original topic tag, got %v", dead.Tags)
	}
	if dead.Status != StatusDead {
		t.Errorf("expected dead status, got %s", dead.Status)
	}
}

func TestUnmarshalRoundTrips(t *testing.T) {
	want := RawListingEvent{Listing: listingFixture()}
	e, err := New(TopicListingsRaw, want)
	if err != nil {
		t.Fatal(err)
	}
	var got RawListingEvent
	if err := e.Unmarshal(&got); err != nil {
		t.Fatal(err)
	}
	if got.Listing.ListingID != want.Listing.ListingID {
		t.Errorf("round trip mismatch: %+v vs %+v", got, want)
	}
}
