package models

type Company struct {
	ID   string
	Name string
	EIN  string
}

type Department struct {
	ID        string
	CompanyID string
	Name      string
}
