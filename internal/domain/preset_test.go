package domain

import "testing"

func TestPresetRegistry(t *testing.T) {
	if _, ok := GetPreset("avatar"); !ok {
		t.Fatal("expected avatar preset to exist")
	}
	if _, ok := GetPreset("missing"); ok {
		t.Fatal("expected lookup of unknown preset to fail")
	}

	list := ListPresets()
	if len(list) == 0 {
		t.Fatal("expected at least one registered preset")
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name >= list[i].Name {
			t.Fatalf("expected presets sorted by name, got %q before %q", list[i-1].Name, list[i].Name)
		}
	}
	for _, preset := range list {
		probe := preset.ApplyTo(DefaultOptions())
		if err := probe.Validate(); err != nil {
			t.Fatalf("preset %q produces invalid options: %v", preset.Name, err)
		}
	}
}

func TestCreateExportRequestValidate(t *testing.T) {
	valid := CreateExportRequest{
		Items: []ExportItem{
			{ImageID: "img_123", Options: DefaultOptions()},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	if err := (CreateExportRequest{}).Validate(); err == nil {
		t.Fatal("expected validation error for empty batch")
	}

	missingImage := CreateExportRequest{
		Items: []ExportItem{{Options: DefaultOptions()}},
	}
	if err := missingImage.Validate(); err == nil {
		t.Fatal("expected validation error for missing image_id")
	}

	badOptions := valid
	badOptions.Items = []ExportItem{{ImageID: "img_123", Options: EditOptions{Quality: 3}}}
	if err := badOptions.Validate(); err == nil {
		t.Fatal("expected validation error for invalid options")
	}
}
