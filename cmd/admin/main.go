package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"eCard/internal/auth"
	"eCard/internal/config"
	"eCard/internal/database"
	"eCard/internal/errcode"
	"eCard/internal/profile"
)

func main() {
	var (
		username = flag.String("name", "", "账号名，同时作为名片公开名称（必填）")
		prompt   = flag.Bool("prompt", false, "交互输入密码；默认生成随机密码")
		dbHost   = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort   = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName   = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser   = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass   = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode  = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	u := strings.TrimSpace(*username)
	if u == "" {
		log.Fatal("missing required flag: --name")
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	dbCfg = overrideDatabaseConfig(dbCfg, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	ctx := context.Background()
	if err := database.Migrate(ctx, db, dbCfg.Migrate); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// 与注册接口使用同一个 Store，用户名比较规则一致。
	store := profile.NewGormStore(db)
	switch _, err := store.FindByName(ctx, u); {
	case err == nil:
		log.Fatalf("user %q already exists", u)
	case errors.Is(err, errcode.ErrNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	var password string
	if *prompt {
		password, err = readPassword()
	} else {
		password, err = generateRandomPassword(24)
	}
	if err != nil {
		log.Fatalf("read password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Name:               u,
		PasswordHash:       hashed,
		MustChangePassword: true,
		ShareID:            uuid.NewString(),
	}
	if err := store.Create(ctx, &user); err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建账号（首次登录需强制改密）：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("分享 ID: %s\n", user.ShareID)
	if !*prompt {
		fmt.Printf("初始密码: %s\n", password)
		fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	}
}

// overrideDatabaseConfig 用非空的命令行参数覆盖环境变量中的配置。
func overrideDatabaseConfig(cfg config.DatabaseConfig, host string, port int, name, user, password, sslmode string) config.DatabaseConfig {
	if host = strings.TrimSpace(host); host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	if name = strings.TrimSpace(name); name != "" {
		cfg.Name = name
	}
	if user = strings.TrimSpace(user); user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Password = password
	}
	if sslmode = strings.TrimSpace(sslmode); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	return cfg
}

// readPassword 从终端读取两次密码并校验一致。
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--prompt requires an interactive terminal")
	}

	fmt.Fprint(os.Stderr, "密码: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "确认密码: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
