package models

// Specialty is a professional category used to route help requests.
type Specialty struct {
	Key   string
	Label string
}

// SpecialtyOther is the sentinel used when a choice token is not recognized.
var SpecialtyOther = Specialty{Key: "OTROS", Label: "Otros"}

// Specialties is the fixed catalog offered in the specialty keyboards.
var Specialties = []Specialty{
	{Key: "PSICOLOGIA_PERINATAL", Label: "Psicología perinatal"},
	{Key: "PSICOLOGIA_INFANTIL", Label: "Psicología infantil"},
	{Key: "PEDIATRIA", Label: "Pediatría"},
	{Key: "MATRONA_GINECOLOGIA", Label: "Matrona y ginecología"},
	{Key: "ENFERMERIA_PEDIATRICA", Label: "Enfermería pediátrica"},
	{Key: "LOGOPEDIA_NEONATAL", Label: "Logopedia neonatal"},
	{Key: "FISIOTERAPIA_PEDIATRICA_RESPIRATORIA", Label: "Fisioterapia pediátrica y respiratoria"},
	{Key: "FISIOTERAPIA_SUELO_PELVICO", Label: "Fisioterapia de suelo pélvico"},
	{Key: "DOULA", Label: "Doula"},
	{Key: "ASESORIA_LACTANCIA", Label: "Asesoría de lactancia"},
	SpecialtyOther,
}

// SpecialtyByKey looks up a catalog entry by its key.
func SpecialtyByKey(key string) (Specialty, bool) {
	for _, s := range Specialties {
		if s.Key == key {
			return s, true
		}
	}
	return Specialty{}, false
}
