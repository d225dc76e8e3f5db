package associations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Author struct {
	ID    uint
	Name  string
	Posts []Post `gorm:"foreignKey:AuthorID"`
}

type Post struct {
	ID       uint
	Title    string
	AuthorID uint
	Author   Author
}

type Tag struct {
	ID       uint
	Comments []Comment
}

type Comment struct {
	ID    uint
	TagID uint
	Body  string
}

func TestFromGormModels(t *testing.T) {
	g, err := FromGormModels(&Author{}, &Post{})
	require.NoError(t, err)

	author := g.Model("Author")
	require.NotNil(t, author)
	assert.Equal(t, "authors", author.TableName)
	require.Len(t, author.Associations, 1)
	assert.Equal(t, HasMany, author.Associations[0].Kind)
	assert.Equal(t, "Post", author.Associations[0].Target)
	assert.Equal(t, "author_id", author.Associations[0].ForeignKey)

	post := g.Model("Post")
	require.NotNil(t, post)
	require.Len(t, post.Associations, 1)
	assert.Equal(t, BelongsTo, post.Associations[0].Kind)
	assert.Equal(t, "Author", post.Associations[0].Target)

	assert.Empty(t, Check(g))
}

func TestFromGormModels_MissingInverse(t *testing.T) {
	g, err := FromGormModels(&Tag{}, &Comment{})
	require.NoError(t, err)

	violations := Check(g)
	require.Len(t, violations, 1)
	assert.Equal(t, "comments", violations[0].TableName)
	assert.Equal(t, "Comment", violations[0].Model)
}

func TestFromGormModels_InvalidModel(t *testing.T) {
	_, err := FromGormModels("not a model")
	assert.Error(t, err)
}
