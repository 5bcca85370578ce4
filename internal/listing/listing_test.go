package listing

import "testing"

func baseListing() Listing {
	return Listing{
		ListingID: "11111111-1111-1111-1111-111111111111",
		Source:    Source{Platform: "zillow"},
		Price:     Price{Amount: 250000, Currency: "USD"},
		Location:  Location{Latitude: 37.7, Longitude: -122.4},
	}
}

func TestValidateAcceptsWellFormedListing(t *testing.T) {
	if err := baseListing().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingID(t *testing.T) {
	l := baseListing()
	l.ListingID = ""
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for missing listing_id")
	}
}

func TestValidateRejectsMissingSourcePlatform(t *testing.T) {
	l := baseListing()
	l.Source.Platform = ""
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for missing source.platform")
	}
}

func TestValidateRejectsNegativePrice(t *testing.T) {
	l := baseListing()
	l.Price.Amount = -1
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestValidateRejectsOutOfBoundsCoordinates(t *testing.T) {
	l := baseListing()
	l.Location.Latitude = 200
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for out-of-bounds latitude")
	}
	l = baseListing()
	l.Location.Longitude = -200
	if err := l.Validate(); err == nil {
		t.Fatal("expected error for out-of-bounds longitude")
	}
}

func TestCloneMetadataIsIndependent(t *testing.T) {
	l := baseListing()
	l.Metadata = map[string]any{"k": "v"}
	cp := l.CloneMetadata()
	cp["k"] = "mutated"
	if l.Metadata["k"] != "v" {
		t.Error("CloneMetadata should not alias the original map")
	}
}
