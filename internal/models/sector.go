package models

// Sector is a hospital ward or department.
type Sector struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// TransferType names the kind of transfer (stretcher, wheelchair, bed...).
type TransferType struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
