// Command clubhub はクラブのイベント告知とメンバー募集の掲示板サーバー。
//
// サブコマンド:
//
//	clubhub [serve]     APIサーバーを起動する
//	clubhub worker      期限切れ投稿のクリーンアップを定期実行する
//	clubhub migrate     データベースマイグレーションを適用する
//	clubhub healthcheck /healthを確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/clubhub/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
