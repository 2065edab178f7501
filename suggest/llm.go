package suggest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/warp/pantry-engine/generic"
)

// =============================================================================
// LLM CLIENT
// =============================================================================

// LLMClient asks a langchaingo model for recipes and ingredient matches.
type LLMClient struct {
	model   llms.Model
	decoder *decoder
	opts    []llms.CallOption
	logger  *log.Logger
}

type Option func(*LLMClient)

func WithTemperature(t float64) Option {
	return func(c *LLMClient) { c.opts = append(c.opts, llms.WithTemperature(t)) }
}

func WithMaxTokens(n int) Option {
	return func(c *LLMClient) { c.opts = append(c.opts, llms.WithMaxTokens(n)) }
}

func WithLogger(l *log.Logger) Option {
	return func(c *LLMClient) { c.logger = l }
}

func NewLLMClient(model llms.Model, opts ...Option) *LLMClient {
	c := &LLMClient{
		model:   model,
		decoder: newDecoder(),
		logger:  log.New(os.Stderr, "[Suggest] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LLMClient) SuggestRecipes(ctx context.Context, req SuggestRequest) RecipesResult {
	text, serr := c.generate(ctx, "recipes", recipeSystemPrompt, buildRecipePrompt(req))
	if serr != nil {
		return RecipesResult{Err: serr}
	}
	recipes, serr := c.decoder.recipes(text)
	if serr != nil {
		c.logger.Printf("recipes: %v", serr)
		return RecipesResult{Err: serr}
	}
	if req.Count > 0 && len(recipes) > req.Count {
		recipes = recipes[:req.Count]
	}
	return RecipesResult{Recipes: recipes}
}

func (c *LLMClient) MatchIngredients(ctx context.Context, req MatchRequest) MatchResult {
	if len(req.Recipe.Ingredients) == 0 || len(req.Inventory) == 0 {
		return MatchResult{}
	}
	text, serr := c.generate(ctx, "match", matchSystemPrompt, buildMatchPrompt(req))
	if serr != nil {
		return MatchResult{Err: serr}
	}
	matches, serr := c.decoder.matches(text, req.Inventory)
	if serr != nil {
		c.logger.Printf("match %s: %v", req.SlotKey, serr)
		return MatchResult{Err: serr}
	}
	return MatchResult{Matches: matches}
}

func (c *LLMClient) generate(ctx context.Context, op, system, prompt string) (string, *generic.SuggestionError) {
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, c.opts...)
	if err != nil {
		c.logger.Printf("%s: transport: %v", op, err)
		return "", &generic.SuggestionError{Op: op, Kind: generic.SuggestionTransport, Reason: "model call failed", Cause: err}
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", &generic.SuggestionError{Op: op, Kind: generic.SuggestionEmpty, Reason: "model returned no content"}
	}
	return resp.Choices[0].Content, nil
}

// =============================================================================
// MODEL CONSTRUCTION
// =============================================================================

// OpenAIConfig points the client at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Token   string
	BaseURL string
	Model   string
}

func NewOpenAIModel(cfg OpenAIConfig) (llms.Model, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("suggestion model token is required")
	}
	opts := []openai.Option{openai.WithToken(cfg.Token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return model, nil
}

// =============================================================================
// PROMPTS
// =============================================================================

const recipeSystemPrompt = `You are a home-cooking assistant. Answer with JSON only, no prose.`

const matchSystemPrompt = `You match recipe ingredients to pantry items. Answer with JSON only, no prose.`

func buildRecipePrompt(req SuggestRequest) string {
	var b strings.Builder
	count := req.Count
	if count <= 0 {
		count = 3
	}
	fmt.Fprintf(&b, "Suggest %d recipes", count)
	if req.MealType != "" {
		fmt.Fprintf(&b, " for %s", strings.ToLower(string(req.MealType)))
	}
	b.WriteString(" that make good use of this inventory.\n\n")

	writeInventory(&b, req.Inventory)

	if len(req.Family) > 0 {
		b.WriteString("\nHOUSEHOLD:\n")
		for _, m := range req.Family {
			fmt.Fprintf(&b, "- %s", m.Name)
			if m.Age > 0 {
				fmt.Fprintf(&b, " (age %d)", m.Age)
			}
			if len(m.Preferences) > 0 {
				fmt.Fprintf(&b, "; likes: %s", strings.Join(m.Preferences, ", "))
			}
			if len(m.Restrictions) > 0 {
				fmt.Fprintf(&b, "; avoid: %s", strings.Join(m.Restrictions, ", "))
			}
			b.WriteString("\n")
		}
	}
	if p := strings.TrimSpace(req.Preferences); p != "" {
		fmt.Fprintf(&b, "\nPREFERENCES: %s\n", p)
	}
	if req.PrioritizeExpiring {
		b.WriteString("\nPrefer items with the earliest expiry.\n")
	}

	b.WriteString(`
Return {"recipes":[{"name":string,"servings":number,"ingredients":[{"name":string,"quantity":string}],
"instructions":[string],"calories":number,"protein":number,"carbs":number,"fat":number,
"storage":string,"reheat":string,"missingIngredients":[string]}]}`)
	return b.String()
}

func buildMatchPrompt(req MatchRequest) string {
	var b strings.Builder
	verb, field := "reserve", "reserveAmount"
	if req.Deduct {
		verb, field = "use up", "deductAmount"
	}
	fmt.Fprintf(&b, "Recipe: %s", req.Recipe.Name)
	if req.Recipe.Servings > 0 {
		fmt.Fprintf(&b, " (%d servings)", req.Recipe.Servings)
	}
	b.WriteString("\n\nINGREDIENTS:\n")
	for _, ing := range req.Recipe.Ingredients {
		fmt.Fprintf(&b, "- %s: %s\n", ing.Name, ing.QuantityText)
	}
	b.WriteString("\n")
	writeInventory(&b, req.Inventory)

	fmt.Fprintf(&b, `
For each ingredient found in the inventory, say how much of the item cooking will %s.
Use the inventory id exactly as given. Skip ingredients with no matching item.
Return {"matches":[{"ingredient":string,"inventoryItemId":string,"matchedName":string,
"currentQuantity":number,"currentUnit":string,"%s":number,"unit":string,
"confidence":"high"|"medium"|"low"}]}`, verb, field)
	return b.String()
}

func writeInventory(b *strings.Builder, inventory []InventoryLine) {
	b.WriteString("INVENTORY (id | name | quantity unit | location | expiry):\n")
	if len(inventory) == 0 {
		b.WriteString("(empty)\n")
		return
	}
	for _, line := range inventory {
		fmt.Fprintf(b, "%s | %s | %s %s | %s | %s\n",
			line.ID, line.Name, line.Quantity.String(), line.Unit, line.Location, line.Expiry)
	}
}
