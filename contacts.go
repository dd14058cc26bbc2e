package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Contact is a named whitelist entry with a generated stable identifier.
type Contact struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	PhoneNumber string `gorm:"not null" json:"phone_number"`
}

// WhitelistNumber is a bare phone number exempt from deletion.
type WhitelistNumber struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Number string `gorm:"unique;not null" json:"number"`
}

// ContactStore persists contacts and whitelist numbers.
type ContactStore struct {
	db *gorm.DB
}

// NewContactStore opens the database and migrates the schema.
func NewContactStore(dsn string) (*ContactStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Contact{}, &WhitelistNumber{}, &CleanupRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &ContactStore{db: db}, nil
}

// Contacts returns all stored contacts.
func (store *ContactStore) Contacts() ([]Contact, error) {
	var contacts []Contact
	if err := store.db.Order("name").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// AddContact stores a contact under a freshly generated id.
func (store *ContactStore) AddContact(name, phoneNumber string) (*Contact, error) {
	if name == "" && phoneNumber == "" {
		return nil, fmt.Errorf("contact requires a name or phone number")
	}
	contact := &Contact{
		ID:          uuid.NewString(),
		Name:        name,
		PhoneNumber: phoneNumber,
	}
	if err := store.db.Create(contact).Error; err != nil {
		return nil, err
	}
	return contact, nil
}

// DeleteContact removes a contact by id.
func (store *ContactStore) DeleteContact(id string) error {
	result := store.db.Delete(&Contact{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("contact %s not found", id)
	}
	return nil
}

// WhitelistNumbers returns all stored bare numbers.
func (store *ContactStore) WhitelistNumbers() ([]WhitelistNumber, error) {
	var numbers []WhitelistNumber
	if err := store.db.Order("number").Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

// AddWhitelistNumber stores a bare phone number.
func (store *ContactStore) AddWhitelistNumber(number string) (*WhitelistNumber, error) {
	if number == "" {
		return nil, fmt.Errorf("number is required")
	}
	entry := &WhitelistNumber{Number: number}
	if err := store.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteWhitelistNumber removes a bare number entry by id.
func (store *ContactStore) DeleteWhitelistNumber(id uint) error {
	result := store.db.Delete(&WhitelistNumber{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("whitelist number %d not found", id)
	}
	return nil
}

// WhitelistSet flattens contacts (names and numbers) plus bare numbers into
// the matchable sender strings the cleanup evaluator consumes.
func (store *ContactStore) WhitelistSet() ([]string, error) {
	contacts, err := store.Contacts()
	if err != nil {
		return nil, err
	}
	numbers, err := store.WhitelistNumbers()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var set []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		set = append(set, s)
	}

	for _, c := range contacts {
		add(c.Name)
		add(c.PhoneNumber)
	}
	for _, n := range numbers {
		add(n.Number)
	}
	return set, nil
}

// ImportContacts ingests a JSON array of {name, phone_number} or a CSV with
// name,phone_number rows. The payload type is sniffed, not declared.
func (store *ContactStore) ImportContacts(data []byte) (int, error) {
	kind := mimetype.Detect(data)

	switch {
	case kind.Is("application/json"):
		return store.importContactsJSON(data)
	case kind.Is("text/csv"), kind.Is("text/plain"):
		return store.importContactsCSV(data)
	default:
		return 0, fmt.Errorf("unsupported import payload type %s", kind.String())
	}
}

func (store *ContactStore) importContactsJSON(data []byte) (int, error) {
	var entries []struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("invalid contact JSON: %w", err)
	}

	imported := 0
	for _, e := range entries {
		if _, err := store.AddContact(e.Name, e.PhoneNumber); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (store *ContactStore) importContactsCSV(data []byte) (int, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("invalid contact CSV: %w", err)
	}

	imported := 0
	for i, rec := range records {
		if len(rec) < 2 {
			return imported, fmt.Errorf("CSV row %d needs name,phone_number", i+1)
		}
		name := strings.TrimSpace(rec[0])
		number := strings.TrimSpace(rec[1])
		if i == 0 && strings.EqualFold(name, "name") {
			continue // header row
		}
		if _, err := store.AddContact(name, number); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
