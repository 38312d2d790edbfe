package extract

import (
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

type categoryKeywords struct {
	category record.Category
	keywords []string
}

// categoryOrder is evaluated top to bottom; the first category with a
// keyword contained in the name wins, so "milk" is a drink, not dairy.
var categoryOrder = []categoryKeywords{
	{record.CategoryDrinks, []string{"water", "juice", "soda", "coffee", "tea", "latte", "drink", "beverage", "milk", "kombucha", "sparkling", "sports drink", "coconut water"}},
	{record.CategorySnacks, []string{"snack", "chips", "cracker", "pretzel", "cookie", "popcorn", "granola", "trail mix", "protein bar", "granola bar", "candy", "nuts", "almond", "peanut", "cashew", "pistachio"}},
	{record.CategoryProduce, []string{"apple", "orange", "banana", "berry", "grape", "melon", "clementine", "fruit", "green", "lettuce", "cabbage", "potato", "onion", "pepper", "tomato", "carrot", "spinach", "produce", "vegetable", "brussel", "pear", "lemon", "grapefruit", "guava", "cuke", "cucumber", "bean", "split pea", "broccoli", "brocolli"}},
	{record.CategoryGrain, []string{"bread", "loaf", "loaves", "rice", "pasta", "grain", "tortilla", "dessert", "cake", "bun"}},
	{record.CategoryMeat, []string{"chicken", "beef", "pork", "turkey", "meat", "steak", "sausage", "ribs"}},
	{record.CategoryDryGoods, []string{"canned", "dry goods", "pantry", "shelf stable", "flour", "sugar", "salt", "spice", "seasoning", "oil", "vinegar", "lentil", "chickpea", "oat", "cereal", "broth", "stock", "sauce", "condiment"}},
	{record.CategoryDairy, []string{"cheese", "yogurt", "butter", "cream", "half and half", "kefir"}},
	{record.CategorySeafood, []string{"scallop", "fish", "shrimp", "salmon", "tuna"}},
}

// Categorize infers the coarse food category of an item name, or
// record.CategoryNone.
func Categorize(name string) record.Category {
	lower := strings.ToLower(name)
	for _, c := range categoryOrder {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return record.CategoryNone
}
