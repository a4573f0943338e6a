package graph

import (
	"github.com/dbsmedya/dcp/internal/config"
	"github.com/dbsmedya/dcp/internal/types"
)

func table(name string, columns []string, fks ...types.ForeignKey) *types.TableMeta {
	return &types.TableMeta{
		Name:        name,
		Columns:     columns,
		PrimaryKey:  []string{columns[0]},
		ForeignKeys: fks,
	}
}

func fk(name, column, refTable, refColumn string) types.ForeignKey {
	return types.ForeignKey{
		Name:              name,
		Columns:           []string{column},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
	}
}

// moviesMetadata mirrors a small catalogue: movies reference distributors,
// reviews reference movies and carry an undeclared distributor column.
func moviesMetadata() types.Metadata {
	return types.Metadata{
		"distributors": table("distributors", []string{"id", "name"}),
		"movies": table("movies", []string{"id", "distributor", "name", "code"},
			fk("movies_distributor_fk", "distributor", "distributors", "id")),
		"types": table("types", []string{"id", "name"}),
		"movie_reviews": table("movie_reviews", []string{"id", "movie", "distributor", "reviewer", "review"},
			fk("reviews_movie_fk", "movie", "movies", "id")),
	}
}

func directive(child, childCol, parent, parentCol string) config.Directive {
	return config.Directive{
		ChildTable:   child,
		ChildColumn:  childCol,
		ParentTable:  parent,
		ParentColumn: parentCol,
	}
}
