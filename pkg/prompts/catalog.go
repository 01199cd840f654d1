package prompts

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// Logic 多个筛选维度之间的组合方式
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// View 列表视图
type View string

const (
	ViewDiscover  View = "discover"
	ViewFavorites View = "favorites"
	ViewMine      View = "mine"
)

// Categories 提示词分类
var Categories = []string{"图片", "语音", "编程", "大模型"}

// Models 品牌 -> 版本
var Models = map[string][]string{
	"GEMINI": {"GEMINI3", "GEMINI2.5", "GEMINI FLASH"},
	"GPT":    {"GPT-4o", "GPT-4", "O1"},
	"CLAUDE": {"CLAUDE 3.5", "CLAUDE 3"},
}

// ThemeTags 主题标签
var ThemeTags = []string{
	"学术", "论文", "写作", "职场", "创意", "设计", "二次元", "写实",
	"Python", "React", "提示词工程", "营销", "翻译", "法律",
}

type Prompt struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand,omitempty"`
	Version     string    `json:"version,omitempty"`
	Tags        []string  `json:"tags"`
	Author      string    `json:"author"`
	IsMine      bool      `json:"is_mine"`
	IsFavorite  bool      `json:"is_favorite"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Prompt) clone() Prompt {
	c := p
	c.Tags = append([]string{}, p.Tags...)
	return c
}

// Query 检索条件
// 每个非空维度（分类、模型、标签）是一个条件，Logic 决定条件之间取交集还是并集
// 标签维度内部同样遵循 Logic；文本检索总是必须命中
type Query struct {
	Text       string   `form:"q" json:"q"`
	Categories []string `form:"category" json:"categories"`
	Brand      string   `form:"brand" json:"brand"`
	Version    string   `form:"version" json:"version"`
	Tags       []string `form:"tag" json:"tags"`
	Logic      Logic    `form:"logic" json:"logic"`
	View       View     `form:"view" json:"view"`
}

// Catalog 提示词库
type Catalog struct {
	mu      sync.RWMutex
	index   bleve.Index
	prompts map[string]Prompt
}

// NewCatalog 创建内存索引并写入种子数据
func NewCatalog(seed []Prompt) (*Catalog, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("创建索引失败: %w", err)
	}

	c := &Catalog{index: index, prompts: make(map[string]Prompt, len(seed))}

	batch := index.NewBatch()
	for _, p := range seed {
		if err := batch.Index(p.ID, document(p)); err != nil {
			index.Close()
			return nil, fmt.Errorf("索引提示词失败: %w", err)
		}
		c.prompts[p.ID] = p.clone()
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("批量索引失败: %w", err)
	}

	logrus.Infof("✓ 提示词库已加载 %d 条", len(seed))
	return c, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = standard.Name
	idx.TypeField = "type"

	text := mapping.NewTextFieldMapping()
	text.Analyzer = standard.Name

	kw := mapping.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	doc := mapping.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("tags", text)
	doc.AddFieldMappingsAt("category", kw)
	idx.AddDocumentMapping("prompt", doc)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}

func document(p Prompt) map[string]any {
	return map[string]any{
		"type":        "prompt",
		"title":       p.Title,
		"description": p.Description,
		"tags":        p.Tags,
		"category":    p.Category,
	}
}

// Get 获取单条
func (c *Catalog) Get(id string) (Prompt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return p.clone(), nil
}

// Create 新建一条“我的”提示词
func (c *Catalog) Create(p Prompt) (Prompt, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	if p.Title == "" || p.Content == "" {
		return Prompt{}, models.Invalidf("标题和内容不能为空")
	}
	if !slices.Contains(Categories, p.Category) {
		return Prompt{}, models.Invalidf("未知分类: %s", p.Category)
	}
	if err := validateModel(p.Brand, p.Version); err != nil {
		return Prompt{}, err
	}

	p.ID = "prompt_" + uuid.New().String()
	p.IsMine = true
	p.CreatedAt = time.Now()
	if p.Author == "" {
		p.Author = "我"
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Index(p.ID, document(p)); err != nil {
		return Prompt{}, fmt.Errorf("索引提示词失败: %w", err)
	}
	c.prompts[p.ID] = p.clone()

	logrus.Infof("✓ 新建提示词: %s", p.Title)
	return p, nil
}

// ToggleFavorite 切换收藏
func (c *Catalog) ToggleFavorite(id string) (Prompt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	p.IsFavorite = !p.IsFavorite
	c.prompts[id] = p
	return p.clone(), nil
}

// Search 检索，有文本时按相关度排序，否则按创建时间倒序
func (c *Catalog) Search(q Query) ([]Prompt, error) {
	if q.Logic == "" {
		q.Logic = LogicAnd
	}
	if q.Logic != LogicAnd && q.Logic != LogicOr {
		return nil, models.Invalidf("未知组合方式: %s", q.Logic)
	}
	if q.View == "" {
		q.View = ViewDiscover
	}
	if q.View != ViewDiscover && q.View != ViewFavorites && q.View != ViewMine {
		return nil, models.Invalidf("未知视图: %s", q.View)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates, err := c.candidates(strings.TrimSpace(q.Text))
	if err != nil {
		return nil, err
	}

	results := make([]Prompt, 0, len(candidates))
	for _, p := range candidates {
		if q.View == ViewFavorites && !p.IsFavorite {
			continue
		}
		if q.View == ViewMine && !p.IsMine {
			continue
		}
		if !q.matches(p) {
			continue
		}
		results = append(results, p.clone())
	}
	return results, nil
}

func (c *Catalog) candidates(text string) ([]Prompt, error) {
	if text == "" {
		all := make([]Prompt, 0, len(c.prompts))
		for _, p := range c.prompts {
			all = append(all, p)
		}
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].ID < all[j].ID
			}
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		return all, nil
	}

	fields := []string{"title", "description", "tags"}
	clauses := make([]query.Query, 0, len(fields))
	for _, field := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(field)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		clauses = append(clauses, mq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(clauses...))
	req.Size = len(c.prompts)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	hits := make([]Prompt, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if p, ok := c.prompts[hit.ID]; ok {
			hits = append(hits, p)
		}
	}
	return hits, nil
}

func (q Query) matches(p Prompt) bool {
	var conds []bool
	if len(q.Categories) > 0 {
		conds = append(conds, slices.Contains(q.Categories, p.Category))
	}
	if q.Brand != "" || q.Version != "" {
		ok := (q.Brand == "" || p.Brand == q.Brand) && (q.Version == "" || p.Version == q.Version)
		conds = append(conds, ok)
	}
	if len(q.Tags) > 0 {
		conds = append(conds, q.matchTags(p.Tags))
	}

	if len(conds) == 0 {
		return true
	}
	if q.Logic == LogicOr {
		return slices.Contains(conds, true)
	}
	return !slices.Contains(conds, false)
}

func (q Query) matchTags(tags []string) bool {
	for _, want := range q.Tags {
		has := slices.Contains(tags, want)
		if q.Logic == LogicOr && has {
			return true
		}
		if q.Logic == LogicAnd && !has {
			return false
		}
	}
	return q.Logic == LogicAnd
}

func validateModel(brand, version string) error {
	if brand == "" {
		if version != "" {
			return models.Invalidf("指定版本时必须指定品牌")
		}
		return nil
	}
	versions, ok := Models[brand]
	if !ok {
		return models.Invalidf("未知模型品牌: %s", brand)
	}
	if version != "" && !slices.Contains(versions, version) {
		return models.Invalidf("%s 没有版本 %s", brand, version)
	}
	return nil
}

// Close 释放索引
func (c *Catalog) Close() error {
	return c.index.Close()
}
