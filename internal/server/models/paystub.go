package models

// PayStub is the read-only projection a document generator renders.
type PayStub struct {
	Company  Company
	Employee Employee
	Period   PayPeriod
	Item     PayrollItem
}
