package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestOpenSeed(t *testing.T) {
	s, _ := openTemp(t)

	creative := s.List(KindCreative, "")
	require.NotEmpty(t, creative)
	for _, tpl := range creative {
		assert.True(t, tpl.Builtin)
		assert.NoError(t, tpl.Validate(), tpl.ID)
	}

	images := s.List(KindImage, "")
	require.NotEmpty(t, images)
	for _, tpl := range images {
		assert.NoError(t, tpl.Validate(), tpl.ID)
	}

	tpl, ok := s.Get("11")
	require.True(t, ok)
	assert.Equal(t, "电影取景地打卡", tpl.Title)
	assert.Equal(t, KindImage, tpl.Kind)

	assert.Len(t, s.List(KindCreative, "销售成交"), 1)
}

func TestSeedCoversEveryKind(t *testing.T) {
	s, _ := openTemp(t)

	all := s.List("", "")
	assert.Len(t, all, 24)
	for _, tpl := range all {
		assert.True(t, tpl.Builtin, tpl.ID)
		assert.NoError(t, tpl.Validate(), tpl.ID)
	}

	assert.Len(t, s.List(KindCreative, ""), 5)
	assert.Len(t, s.List(KindImage, ""), 17)
	assert.Len(t, s.List(KindArticle, "写作辅助"), 1)
	assert.Len(t, s.List(KindCode, ""), 1)

	imageCats := s.Categories(KindImage)
	for _, c := range []string{"创意合成", "3D设计", "动漫插画", "插画", "文化创意", "设计", "摄影"} {
		assert.Contains(t, imageCats, c)
	}

	tpl, ok := s.Get("solarterm-1")
	require.True(t, ok)
	assert.Equal(t, "节气相框", tpl.Title)
	assert.NotEmpty(t, tpl.PromptZh)
	assert.NotEmpty(t, tpl.PromptEn)

	tpl, ok = s.Get("18")
	require.True(t, ok)
	assert.Equal(t, KindArticle, tpl.Kind)
}

func TestCreatePersistsAndReloads(t *testing.T) {
	s, path := openTemp(t)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.FixedZone("CST", 8*3600)) }

	created, err := s.Create(Template{
		Title:        "  周报助手 ",
		Category:     "文章创作",
		SystemPrompt: "把要点整理成周报",
		Builtin:      true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "周报助手", created.Title)
	assert.Equal(t, KindCreative, created.Kind)
	assert.False(t, created.Builtin)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), created.CreatedAt)
	assert.FileExists(t, path)

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "把要点整理成周报", got.SystemPrompt)
	assert.False(t, got.Builtin)

	list := reopened.List(KindCreative, "文章创作")
	assert.Equal(t, created.ID, list[len(list)-1].ID)
}

func TestCreateValidation(t *testing.T) {
	s, path := openTemp(t)

	tests := []Template{
		{Category: "文章创作", SystemPrompt: "x"},
		{Title: "t", Category: "文章创作"},
		{Title: "t", Category: "闲聊", SystemPrompt: "x"},
		{Title: "t", Kind: KindImage, Category: "3D设计"},
		{Title: "t", Kind: KindImage, PromptEn: "a cat"},
		{Title: "t", Kind: "video", SystemPrompt: "x"},
		{Title: "t", Kind: KindArticle, Category: "写作辅助"},
	}
	for _, tpl := range tests {
		_, err := s.Create(tpl)
		assert.ErrorIs(t, err, ErrInvalid, "%+v", tpl)
	}
	assert.NoFileExists(t, path)

	_, err := s.Create(Template{Title: "t", Kind: KindImage, Category: "3D设计", PromptZh: "一只猫"})
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	s, path := openTemp(t)

	assert.ErrorIs(t, s.Delete("11"), ErrBuiltin)
	assert.ErrorIs(t, s.Delete("nope"), ErrNotFound)

	created, err := s.Create(Template{Title: "t", Category: "个人IP", SystemPrompt: "x"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(created.ID))
	_, ok := s.Get(created.ID)
	assert.False(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestCategories(t *testing.T) {
	s, _ := openTemp(t)

	assert.Equal(t, CreativeCategories, s.Categories(KindCreative))
	assert.Contains(t, s.Categories(KindImage), "创意合成")
	assert.NotContains(t, s.Categories(KindImage), "")
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestSaveIsNoopWhenClean(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Save())
	assert.NoFileExists(t, path)
}
