package dto

type AppOutput struct {
	ID   string
	Name string
	Exec string
	Icon string
}
