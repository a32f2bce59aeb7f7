package customer

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"customer-report/internal/domain"

	"github.com/google/uuid"
)

// Generate creates n synthetic customers with ids 0..n-1, a birthday within
// the hundred years before now and fewer than 100 transactions.
func Generate(n int, now time.Time, rnd *rand.Rand) []domain.Customer {
	customers := make([]domain.Customer, 0, n)
	year := now.Year()
	for i := 0; i < n; i++ {
		birthYear := year - 100 + rnd.IntN(100)
		daysInYear := time.Date(birthYear, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
		birthday := BirthDate(birthYear, time.January, 1+rnd.IntN(daysInYear))

		customers = append(customers, domain.Customer{
			ID:           i,
			Name:         randomName(i),
			Birthday:     birthday,
			Transactions: rnd.IntN(100),
		})
	}
	return customers
}

// BirthDate returns the calendar date as noon UTC, so the stored day and month
// read the same in every time zone within twelve hours of UTC.
func BirthDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

// randomName keeps the lowercase letters of a random uuid.
func randomName(id int) string {
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, uuid.NewString())
	if name == "" {
		return "customer" + strconv.Itoa(id)
	}
	return name
}
