package manifest

import "testing"

const validDoc = `
id: plugin-detection-price-outlier
name: Price Outlier Detector
version: 1.0.0
kind: detection
api_version: "1.0"
description: Flags listings whose price deviates sharply from comparables.
entrypoint:
  module: plugins.detection.price_outlier
  class: PriceOutlierDetector
dependencies:
  core_version: ">=1.0.0"
`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Kind != KindDetection {
		t.Errorf("expected kind detection, got %s", m.Kind)
	}
	if m.Entrypoint.Class != "PriceOutlierDetector" {
		t.Errorf("unexpected entrypoint class: %s", m.Entrypoint.Class)
	}
}

func TestParseRejectsBadID(t *testing.T) {
	doc := `
id: detector-one
name: Bad
version: 1.0.0
kind: detection
api_version: "1.0"
description: x
entrypoint:
  module: m
  class: C
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected SchemaError for malformed id")
	}
	var se *SchemaError
	if !asSchemaError(err, &se) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if se.Field != "id" {
		t.Errorf("expected field id, got %s", se.Field)
	}
}

func TestParseRejectsMismatchedKindSegment(t *testing.T) {
	doc := `
id: plugin-processing-price-outlier
name: Price Outlier Detector
version: 1.0.0
kind: detection
api_version: "1.0"
description: x
entrypoint:
  module: m
  class: C
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected error when id kind segment disagrees with declared kind")
	}
}

func TestParseRejectsUnsupportedAPIVersion(t *testing.T) {
	doc := `
id: plugin-detection-price-outlier
name: Price Outlier Detector
version: 1.0.0
kind: detection
api_version: "2.0"
description: x
entrypoint:
  module: m
  class: C
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for unsupported api_version")
	}
}

func TestParseRejectsInvalidVersion(t *testing.T) {
	doc := `
id: plugin-detection-price-outlier
name: Price Outlier Detector
version: not-a-version
kind: detection
api_version: "1.0"
description: x
entrypoint:
  module: m
  class: C
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected SchemaError for malformed version")
	}
	var se *SchemaError
	if !asSchemaError(err, &se) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if se.Field != "version" {
		t.Errorf("expected field version, got %s", se.Field)
	}
}

func TestParseRejectsOversizedDocument(t *testing.T) {
	big := make([]byte, MaxSizeBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	if _, err := Parse(big); err == nil {
		t.Fatal("expected error for oversized manifest")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	m, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("round-tripped manifest failed to parse: %v", err)
	}
	if again.ID != m.ID || again.Entrypoint != m.Entrypoint {
		t.Error("round trip did not preserve id/entrypoint")
	}
}

func asSchemaError(err error, target **SchemaError) bool {
	se, ok := err.(*SchemaError)
	if !ok {
		return false
	}
	*target = se
	return true
}
