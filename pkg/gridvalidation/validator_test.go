package gridvalidation

import "testing"

func TestValidateStructBusRecord(t *testing.T) {
	good := BusRecord{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "slack"}
	if err := ValidateStruct(good); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	bad := BusRecord{ExternalID: 1, VMin: 0.9, VMax: 1.1, Type: "reference"}
	if err := ValidateStruct(bad); err == nil {
		t.Fatal("expected validation error for unknown bus type")
	}
}

func TestConfigValidatorAccumulatesErrors(t *testing.T) {
	cv := NewConfigValidator("Generator")
	cv.Ordered("limits", 50, 10) // lo > hi, should fail
	cv.Positive("vSetpoint", -1)

	if !cv.HasErrors() {
		t.Fatal("expected accumulated errors")
	}
	if len(cv.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(cv.Errors()))
	}
	if err := cv.Validate(); err == nil {
		t.Fatal("expected combined error")
	}
}

func TestValidateConfigRejectsNil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
