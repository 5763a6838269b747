package filesystem

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/min-tian-thomas/deployment/deploy"
)

// TemplateRepository reads template files from
// <root>/deployments/<dc>/templates/<name>.
type TemplateRepository struct {
	root string
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (repo *TemplateRepository) Get(datacenter, name string) (string, error) {
	filename := filepath.Join(repo.root, "deployments", datacenter, "templates", name)
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		scope := deploy.Scope{Datacenter: datacenter, Template: name}
		if os.IsNotExist(err) {
			return "", deploy.NewErrorf(deploy.ParseError, scope, "", nil,
				"template file not found: %s", filename)
		}
		return "", deploy.NewErrorf(deploy.IOError, scope, "", nil,
			"cannot read template file: %s", err)
	}
	return string(content), nil
}
