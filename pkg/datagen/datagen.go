// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package datagen produces CSV and TSV fixtures for import scenarios.
package datagen

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

var firstNames = []string{
	"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Henry",
	"Ivy", "Jack", "Kate", "Liam", "Mia", "Noah", "Olivia", "Paul",
	"Quinn", "Ruby", "Sam", "Tara", "Uma", "Victor", "Wendy", "Xavier",
	"Yara", "Zoe", "Adam", "Beth", "Carl", "Dora", "Eric", "Fiona",
	"George", "Helen", "Ian", "Jane", "Kevin", "Lisa", "Mark", "Nina",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	"Lee", "Perez", "Thompson", "White", "Harris", "Sanchez", "Clark",
	"Ramirez", "Lewis", "Robinson", "Walker", "Young", "Allen", "King",
	"Wright", "Scott", "Torres", "Nguyen", "Hill", "Flores", "Green",
}

var cities = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia",
	"San Antonio", "San Diego", "Dallas", "San Jose", "Austin", "Jacksonville",
	"Fort Worth", "Columbus", "Charlotte", "San Francisco", "Indianapolis",
	"Seattle", "Denver", "Washington", "Boston", "El Paso", "Nashville",
	"Detroit", "Oklahoma City", "Portland", "Las Vegas", "Memphis",
	"Louisville", "Baltimore", "Milwaukee", "Albuquerque", "Tucson",
	"Fresno", "Sacramento", "Mesa", "Kansas City", "Atlanta", "Long Beach",
	"Colorado Springs", "Raleigh",
}

var departments = []string{
	"Engineering", "Sales", "Marketing", "Finance", "Human Resources",
	"Operations", "Customer Support", "Product Management", "Design",
	"Legal", "Research", "Quality Assurance", "Business Development",
	"Information Technology", "Administration",
}

var jobTitles = []string{
	"Software Engineer", "Sales Representative", "Marketing Manager",
	"Financial Analyst", "HR Specialist", "Operations Manager",
	"Customer Success Manager", "Product Manager", "UX Designer",
	"Legal Counsel", "Research Scientist", "QA Engineer",
	"Business Development Manager", "IT Administrator", "Executive Assistant",
}

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
	"elit", "sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore",
	"et", "dolore", "magna", "aliqua", "enim", "ad", "minim", "veniam",
	"quis", "nostrud", "exercitation", "ullamco", "laboris", "nisi",
	"aliquip", "ex", "ea", "commodo", "consequat", "duis", "aute", "irure",
	"in", "reprehenderit", "voluptate", "velit", "esse", "cillum", "eu",
	"fugiat", "nulla", "pariatur",
}

var emailDomains = []string{"example.com", "test.org", "demo.net", "sample.co", "mock.io"}

// EmployeeHeader names the columns of the wide fixture format.
var EmployeeHeader = []string{
	"id", "name", "email", "phone", "city", "department", "job_title",
	"salary", "performance_score", "hire_date", "is_active", "notes",
	"years_experience", "projects_completed",
}

// Generator produces pseudo-random employee records. The same seed
// yields the same fixture.
type Generator struct {
	rnd *rand.Rand
}

// New builds a generator. Seed zero picks the current time.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rnd.Intn(len(pool))]
}

// Name returns a random full name.
func (g *Generator) Name() string {
	return g.pick(firstNames) + " " + g.pick(lastNames)
}

// Email derives an address from a name.
func (g *Generator) Email(name string) string {
	local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	return local + "@" + g.pick(emailDomains)
}

// Phone returns a formatted US-style number.
func (g *Generator) Phone() string {
	return fmt.Sprintf("(%d) %d-%d",
		200+g.rnd.Intn(800), 200+g.rnd.Intn(800), 1000+g.rnd.Intn(9000))
}

// Date returns a random day between 2020 and 2024 inclusive.
func (g *Generator) Date() string {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours() / 24)
	return start.AddDate(0, 0, g.rnd.Intn(days)).Format("2006-01-02")
}

// Salary returns an annual figure between 30000 and 150000.
func (g *Generator) Salary() int {
	return 30000 + g.rnd.Intn(120001)
}

// Decimal returns a value in [min, max) rounded to two places.
func (g *Generator) Decimal(min, max float64) float64 {
	v := min + g.rnd.Float64()*(max-min)
	return float64(int(v*100)) / 100
}

// Text returns between min and max lorem words.
func (g *Generator) Text(min, max int) string {
	n := min + g.rnd.Intn(max-min+1)
	words := make([]string, n)
	for i := range words {
		words[i] = g.pick(loremWords)
	}
	return strings.Join(words, " ")
}

// Bool flips a fair coin.
func (g *Generator) Bool() bool {
	return g.rnd.Intn(2) == 0
}

// EmployeeRecord builds the wide fourteen-column record.
func (g *Generator) EmployeeRecord(id int) []string {
	name := g.Name()
	return []string{
		strconv.Itoa(id),
		name,
		g.Email(name),
		g.Phone(),
		g.pick(cities),
		g.pick(departments),
		g.pick(jobTitles),
		strconv.Itoa(g.Salary()),
		strconv.FormatFloat(g.Decimal(0, 100), 'f', 2, 64),
		g.Date(),
		strconv.FormatBool(g.Bool()),
		g.Text(20, 100),
		strconv.Itoa(1 + g.rnd.Intn(50)),
		strconv.Itoa(g.rnd.Intn(11)),
	}
}

// SimpleRecord builds the three-column id, name, age record.
func (g *Generator) SimpleRecord(id int) []string {
	return []string{
		strconv.Itoa(id),
		g.Name(),
		strconv.Itoa(18 + g.rnd.Intn(48)),
	}
}

// SimpleRecordWithNulls blanks name or age on some rows so imports can
// exercise column defaults.
func (g *Generator) SimpleRecordWithNulls(id int) []string {
	rec := g.SimpleRecord(id)
	switch g.rnd.Intn(4) {
	case 0:
		rec[1] = ""
	case 1:
		rec[2] = ""
	case 2:
		rec[1], rec[2] = "", ""
	}
	return rec
}
