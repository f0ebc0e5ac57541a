package models

type Restaurant struct {
	ID       string
	Name     string
	Cuisine  string
	Position Position
}

type MenuItem struct {
	Item  string
	Price float64
}
