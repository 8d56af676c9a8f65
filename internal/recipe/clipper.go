package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cookin/internal/llm"

	"github.com/PuerkitoBio/goquery"
)

// Clipper fetches a recipe page, extracts the recipe with the model,
// and saves it to the user's collection.
type Clipper struct {
	repo    *Repository
	gateway llm.Gateway
	client  *http.Client
}

// ExtractedRecipe is the shape the model returns during extraction.
type ExtractedRecipe struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
	CookTime    string   `json:"cook_time"`
	Cuisine     string   `json:"cuisine"`
}

// NewClipper creates a new Clipper.
func NewClipper(repo *Repository, gateway llm.Gateway) *Clipper {
	return &Clipper{
		repo:    repo,
		gateway: gateway,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ClipURL fetches the URL, extracts the recipe, and saves it for the
// user. Returns ErrDuplicateName if they already have one by that name.
func (c *Clipper) ClipURL(ctx context.Context, userPhone, url string) (*SavedRecipe, error) {
	content, err := c.fetchAndCleanHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}

	prompt := fmt.Sprintf(`Extract the recipe from the following web page text.
Return strictly a JSON object with this structure:
{
  "title": "Recipe Title",
  "ingredients": ["item 1", "item 2"],
  "steps": ["Step 1 description", "Step 2 description"],
  "cook_time": "e.g. 30 minutes",
  "cuisine": "e.g. thai"
}

Page text:
%s`, content)

	resp, err := c.gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("recipe extraction failed: %w", err)
	}

	raw := stripFences(resp.Content)
	var extracted ExtractedRecipe
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	if extracted.Title == "" {
		return nil, fmt.Errorf("no recipe found at %s", url)
	}

	ingredients := make([]Ingredient, 0, len(extracted.Ingredients))
	for _, name := range extracted.Ingredients {
		ingredients = append(ingredients, Ingredient{Name: name})
	}

	return c.repo.Save(ctx, SavedRecipe{
		UserPhone:           userPhone,
		Name:                extracted.Title,
		OriginalRecipeSteps: strings.Join(extracted.Steps, "\n"),
		Ingredients:         ingredients,
		CookTimeMin:         parseMinutes(extracted.CookTime),
		Cuisine:             strings.ToLower(extracted.Cuisine),
		Notes:               "imported from " + url,
	})
}

func (c *Clipper) fetchAndCleanHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	// Remove noise to save model tokens
	doc.Find("script, style, nav, footer, iframe, ads, .ads, #ads").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return doc.Find("body").Text(), nil
}

// parseMinutes pulls the first number out of a free-text duration like
// "about 45 minutes". Returns 0 when there is none.
func parseMinutes(s string) int {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, _ := strconv.Atoi(s[start:i])
			return n
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(s[start:])
		return n
	}
	return 0
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
