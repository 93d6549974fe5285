package labs

import "github.com/smartqueue/smartqueue/internal/domain/directory"

// Test categories.
const (
	CatBloodCount      = "blood_count"
	CatBloodChemistry  = "blood_chemistry"
	CatUrineAnalysis   = "urine_analysis"
	CatLipidPanel      = "lipid_panel"
	CatLiverFunction   = "liver_function"
	CatKidneyFunction  = "kidney_function"
	CatThyroidFunction = "thyroid_function"
	CatGlucoseTest     = "glucose_test"
	CatHbA1c           = "hba1c"
	CatXRayChest       = "xray_chest"
	CatXRayBone        = "xray_bone"
	CatCTScan          = "ct_scan"
	CatMRIScan         = "mri_scan"
	CatUltrasound      = "ultrasound"
	CatECG             = "ecg"
	CatEcho            = "echo"
	CatCulture         = "culture"
	CatBiopsy          = "biopsy"
)

// categorySpecialization maps a test category to the technician
// specialization (and lab department specialty) that performs it.
// Categories absent from the map fall back to general.
var categorySpecialization = map[string]string{
	CatBloodCount:      directory.SpecHematology,
	CatBloodChemistry:  directory.SpecChemistry,
	CatUrineAnalysis:   directory.SpecChemistry,
	CatLipidPanel:      directory.SpecChemistry,
	CatLiverFunction:   directory.SpecChemistry,
	CatKidneyFunction:  directory.SpecChemistry,
	CatThyroidFunction: directory.SpecChemistry,
	CatGlucoseTest:     directory.SpecChemistry,
	CatHbA1c:           directory.SpecChemistry,
	CatCulture:         directory.SpecMicrobiology,
	CatBiopsy:          directory.SpecPathology,
	CatXRayChest:       directory.SpecRadiology,
	CatXRayBone:        directory.SpecRadiology,
	CatCTScan:          directory.SpecRadiology,
	CatMRIScan:         directory.SpecRadiology,
	CatUltrasound:      directory.SpecRadiology,
	CatECG:             directory.SpecCardiology,
	CatEcho:            directory.SpecCardiology,
}

// categoryEquipment maps a test category to the equipment type it
// reserves. Categories absent from the map need no machine, only a
// technician.
var categoryEquipment = map[string]string{
	CatBloodCount:      "hematology_analyzer",
	CatBloodChemistry:  "chemistry_analyzer",
	CatLipidPanel:      "chemistry_analyzer",
	CatLiverFunction:   "chemistry_analyzer",
	CatKidneyFunction:  "chemistry_analyzer",
	CatThyroidFunction: "chemistry_analyzer",
	CatGlucoseTest:     "chemistry_analyzer",
	CatHbA1c:           "chemistry_analyzer",
	CatXRayChest:       "xray_machine",
	CatXRayBone:        "xray_machine",
	CatCTScan:          "ct_scanner",
	CatMRIScan:         "mri_machine",
	CatUltrasound:      "ultrasound_machine",
	CatEcho:            "ultrasound_machine",
	CatECG:             "ecg_machine",
}

// SpecializationFor returns the specialization handling a category.
func SpecializationFor(category string) string {
	if s, ok := categorySpecialization[category]; ok {
		return s
	}
	return directory.SpecGeneral
}

// EquipmentTypeFor returns the required equipment type, empty when the
// category needs none.
func EquipmentTypeFor(category string) string {
	return categoryEquipment[category]
}

// ValidCategory reports whether the category is known.
func ValidCategory(category string) bool {
	switch category {
	case CatBloodCount, CatBloodChemistry, CatUrineAnalysis, CatLipidPanel,
		CatLiverFunction, CatKidneyFunction, CatThyroidFunction, CatGlucoseTest,
		CatHbA1c, CatXRayChest, CatXRayBone, CatCTScan, CatMRIScan,
		CatUltrasound, CatECG, CatEcho, CatCulture, CatBiopsy:
		return true
	}
	return false
}
