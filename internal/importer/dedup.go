package importer

// Conflict reports that a key seen on the current row already appeared
// on an earlier row. Under last-wins the earlier row is the loser.
type Conflict struct {
	Key      string // "employee_number" or "email"
	Value    string
	PriorRow int
}

// Detector tracks key occurrences across the whole file, chunk
// boundaries included. State is per job and reset on a fresh start.
type Detector struct {
	byNumber map[string]int
	byEmail  map[string]int
}

func NewDetector() *Detector {
	return &Detector{
		byNumber: make(map[string]int),
		byEmail:  make(map[string]int),
	}
}

// Observe registers a valid row's keys and returns conflicts with any
// earlier rows holding the same keys. The current row always becomes
// the last occurrence.
func (d *Detector) Observe(rowNum int, employeeNumber, emailKey string) []Conflict {
	var conflicts []Conflict
	if prior, ok := d.byNumber[employeeNumber]; ok && prior != rowNum {
		conflicts = append(conflicts, Conflict{Key: ColEmployeeNumber, Value: employeeNumber, PriorRow: prior})
	}
	if prior, ok := d.byEmail[emailKey]; ok && prior != rowNum {
		conflicts = append(conflicts, Conflict{Key: ColEmail, Value: emailKey, PriorRow: prior})
	}
	d.byNumber[employeeNumber] = rowNum
	d.byEmail[emailKey] = rowNum
	return conflicts
}

// Seed restores a key occurrence without reporting conflicts. Used
// when resuming a job, replaying the ledger so rows before the
// checkpoint still participate in duplicate detection.
func (d *Detector) Seed(rowNum int, employeeNumber, emailKey string) {
	if employeeNumber != "" {
		if prior, ok := d.byNumber[employeeNumber]; !ok || rowNum > prior {
			d.byNumber[employeeNumber] = rowNum
		}
	}
	if emailKey != "" {
		if prior, ok := d.byEmail[emailKey]; !ok || rowNum > prior {
			d.byEmail[emailKey] = rowNum
		}
	}
}
