package memdispatch

import (
	"context"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/pkg/errors"
)

var ErrEmptyCatalog = errors.New("catalog is empty")

type restaurantEntry struct {
	restaurant models.Restaurant
	menu       []models.MenuItem
}

// AddRestaurant registers a restaurant; restaurants without menu items are never picked.
func (s *Store) AddRestaurant(_ context.Context, r models.Restaurant, menu []models.MenuItem) error {
	if len(menu) == 0 {
		return nil
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.restaurants = append(s.restaurants, restaurantEntry{
		restaurant: r,
		menu:       append([]models.MenuItem(nil), menu...),
	})
	return nil
}

func (s *Store) RandomPick(_ context.Context) (*models.Restaurant, *models.MenuItem, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	if len(s.restaurants) == 0 {
		return nil, nil, ErrEmptyCatalog
	}

	s.rndMu.Lock()
	e := s.restaurants[s.rnd.Intn(len(s.restaurants))]
	item := e.menu[s.rnd.Intn(len(e.menu))]
	s.rndMu.Unlock()

	r := e.restaurant
	return &r, &item, nil
}

// SeedParis fills the catalog with a handful of restaurants inside the courier start area.
func (s *Store) SeedParis(ctx context.Context) error {
	for _, e := range parisCatalog {
		if err := s.AddRestaurant(ctx, e.restaurant, e.menu); err != nil {
			return err
		}
	}
	return nil
}

var parisCatalog = []restaurantEntry{
	{
		restaurant: models.Restaurant{ID: "r-bastille", Name: "Le Petit Bastille", Cuisine: "French", Position: models.Position{Lon: 2.3692, Lat: 48.8532}},
		menu:       []models.MenuItem{{Item: "Croque-monsieur", Price: 9.5}, {Item: "Soupe a l'oignon", Price: 8}},
	},
	{
		restaurant: models.Restaurant{ID: "r-montmartre", Name: "Pizzeria Montmartre", Cuisine: "Italian", Position: models.Position{Lon: 2.3431, Lat: 48.8867}},
		menu:       []models.MenuItem{{Item: "Margherita", Price: 11}, {Item: "Calzone", Price: 13.5}},
	},
	{
		restaurant: models.Restaurant{ID: "r-marais", Name: "Falafel du Marais", Cuisine: "Middle Eastern", Position: models.Position{Lon: 2.3590, Lat: 48.8573}},
		menu:       []models.MenuItem{{Item: "Falafel special", Price: 8.5}, {Item: "Shawarma", Price: 10}},
	},
	{
		restaurant: models.Restaurant{ID: "r-belleville", Name: "Belleville Noodles", Cuisine: "Chinese", Position: models.Position{Lon: 2.3768, Lat: 48.8719}},
		menu:       []models.MenuItem{{Item: "Ramen", Price: 12}, {Item: "Dumplings", Price: 7.5}},
	},
	{
		restaurant: models.Restaurant{ID: "r-montparnasse", Name: "Creperie Montparnasse", Cuisine: "Breton", Position: models.Position{Lon: 2.3262, Lat: 48.8421}},
		menu:       []models.MenuItem{{Item: "Galette complete", Price: 10.5}, {Item: "Crepe caramel", Price: 6}},
	},
}
